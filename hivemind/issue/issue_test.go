package issue

import (
	"testing"

	"hivemind/hivemind/cas"
)

func ptrStr(v string) *string { return &v }

func TestIssueValidateRequiresQuestion(t *testing.T) {
	i := &Issue{AnswerType: AnswerInteger, ConsensusType: ConsensusSingle}
	if err := i.Validate(); err == nil {
		t.Fatalf("expected error for issue with no questions")
	}
}

func TestIssueValidateRejectsBadEnums(t *testing.T) {
	i := &Issue{Questions: []string{"q"}, AnswerType: "Bogus", ConsensusType: ConsensusSingle}
	if err := i.Validate(); err == nil {
		t.Fatalf("expected error for invalid answer_type")
	}
}

func TestConstraintsLALRequiresXPub(t *testing.T) {
	c := &Constraints{LAL: ptrStr("addr1")}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error: LAL without xpub")
	}
	c.XPub = ptrStr("xpub1")
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error once xpub is set: %v", err)
	}
}

func TestIssueSaveDerivesHivemindID(t *testing.T) {
	store := cas.NewMemory()
	i := &Issue{
		Questions:     []string{"Who should win?"},
		Description:   "Pick a winner",
		AnswerType:    AnswerString,
		ConsensusType: ConsensusSingle,
		OnSelection:   OnSelectionFinalize,
	}
	hash, err := i.Save(store)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if i.HivemindID == "" {
		t.Fatalf("expected hivemind_id to be derived")
	}
	loaded, err := Load(store, hash)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.HivemindID != i.HivemindID {
		t.Fatalf("hivemind_id mismatch: got %s want %s", loaded.HivemindID, i.HivemindID)
	}
}

func TestCacheMemoizesLoads(t *testing.T) {
	store := cas.NewMemory()
	i := &Issue{Questions: []string{"q"}, AnswerType: AnswerBool, ConsensusType: ConsensusSingle}
	hash, err := i.Save(store)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	cache := NewCache(store)
	a, err := cache.Load(hash)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b, err := cache.Load(hash)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if a != b {
		t.Fatalf("expected cache to return the same pointer on repeated loads")
	}
}

func TestRestrictionsAllows(t *testing.T) {
	r := &Restrictions{Addresses: []string{"addr-a"}}
	if !r.Allows("addr-a") {
		t.Fatalf("expected addr-a to be allowed")
	}
	if r.Allows("addr-b") {
		t.Fatalf("expected addr-b to be rejected")
	}
	var open *Restrictions
	if !open.Allows("anyone") {
		t.Fatalf("expected nil restrictions to allow any address")
	}
}
