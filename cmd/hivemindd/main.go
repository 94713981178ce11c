// Command hivemindd wires a content-addressed store, a signer, and a
// configuration file into a runnable demonstration of the Hivemind engine:
// it creates (or reuses, since content addressing is idempotent) a sample
// Issue, proposes an option, submits an opinion, and prints the resulting
// consensus. There is no RPC server or interactive prompt loop — per
// spec.md 1, those are explicit external concerns outside the core engine;
// cfg.ListenAddress is parsed but not yet bound to anything.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"hivemind/config"
	"hivemind/crypto"
	"hivemind/hivemind/cas"
	"hivemind/hivemind/issue"
	"hivemind/hivemind/opinion"
	"hivemind/hivemind/option"
	"hivemind/hivemind/state"
	"hivemind/observability/logging"
)

func main() {
	configFile := flag.String("config", "./hivemind.toml", "Path to the configuration file")
	env := flag.String("env", "dev", "Deployment environment label for log lines")
	memoryStore := flag.Bool("memory", false, "Use an in-memory store instead of cfg.DataDir")
	flag.Parse()

	logger := logging.Setup("hivemindd", *env)

	if err := run(*configFile, *memoryStore, logger); err != nil {
		logger.Error("hivemindd exited with an error", "error", err)
		os.Exit(1)
	}
}

func run(configFile string, useMemory bool, logger *slog.Logger) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var store cas.Store
	if useMemory {
		store = cas.NewMemory()
	} else {
		store, err = cas.NewDisk(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open data dir %s: %w", cfg.DataDir, err)
		}
	}

	keyBytes, err := hex.DecodeString(cfg.SignerKey)
	if err != nil {
		return fmt.Errorf("decode signer key: %w", err)
	}
	key, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return fmt.Errorf("load signer key: %w", err)
	}
	address := key.PubKey().Address(crypto.DefaultHRP)
	logger.Info("hivemindd starting", "address", address.String(), "data_dir", cfg.DataDir)

	issueCache := issue.NewCache(store)
	iss := &issue.Issue{
		Questions:     []string{"What should hivemindd demonstrate?"},
		Description:   "a sample issue created on every hivemindd run",
		AnswerType:    issue.AnswerString,
		ConsensusType: issue.ConsensusSingle,
		OnSelection:   issue.OnSelectionNone,
	}
	issueHash, err := iss.Save(store)
	if err != nil {
		return fmt.Errorf("save issue: %w", err)
	}
	logger.Info("issue ready", "hivemind_id", iss.HivemindID, "hash", issueHash.String())

	st, err := state.New(iss, issueHash, state.Deps{Store: store, IssueCache: issueCache})
	if err != nil {
		return fmt.Errorf("create state: %w", err)
	}

	opt, err := option.New(iss, issueHash, "a working demo", option.Deps{Cache: issueCache})
	if err != nil {
		return fmt.Errorf("create option: %w", err)
	}
	optionHash, err := opt.Save(store)
	if err != nil {
		return fmt.Errorf("save option: %w", err)
	}
	optSig, err := crypto.Sign(key, crypto.IPFSMessage(string(optionHash)))
	if err != nil {
		return fmt.Errorf("sign option: %w", err)
	}
	if err := st.AddOption(optionHash, address.String(), optSig); err != nil {
		return fmt.Errorf("add option: %w", err)
	}

	op, err := opinion.New(address.String(), "", 0, []cas.Multihash{optionHash}, nil, st.OptionHashes())
	if err != nil {
		return fmt.Errorf("create opinion: %w", err)
	}
	opinionHash, err := op.Save(store)
	if err != nil {
		return fmt.Errorf("save opinion: %w", err)
	}
	opinionSig, err := crypto.Sign(key, crypto.IPFSMessage(string(opinionHash)))
	if err != nil {
		return fmt.Errorf("sign opinion: %w", err)
	}
	if err := st.AddOpinion(opinionHash, opinionSig, nil, 0); err != nil {
		return fmt.Errorf("add opinion: %w", err)
	}

	if err := st.CalculateResults(0); err != nil {
		return fmt.Errorf("calculate results: %w", err)
	}
	consensus, err := st.Consensus(0)
	if err != nil {
		return fmt.Errorf("consensus: %w", err)
	}
	if consensus == nil {
		logger.Info("no consensus reached")
		return nil
	}

	stateHash, err := st.Save()
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	logger.Info("consensus reached",
		"option_hash", consensus.OptionHash.String(),
		"value", consensus.Value,
		"state_hash", stateHash.String(),
	)
	return nil
}

