package idhash

import "testing"

func TestComputeCampaignID(t *testing.T) {
	id := ComputeCampaignID("Creator111", "MEME", 1700000000000)
	if len(id) != 64 {
		t.Errorf("expected 64-char hash, got %d", len(id))
	}

	// Deterministic
	id2 := ComputeCampaignID("Creator111", "MEME", 1700000000000)
	if id != id2 {
		t.Errorf("same inputs produced different hashes: %s vs %s", id, id2)
	}

	// Different inputs produce different hashes
	id3 := ComputeCampaignID("Creator222", "MEME", 1700000000000)
	if id == id3 {
		t.Error("different creators produced same hash")
	}
}

func TestComputeContributionID(t *testing.T) {
	a := ComputeContributionID("camp1", "wallet1", "sig1")
	b := ComputeContributionID("camp1", "wallet1", "sig2")
	if a == b {
		t.Error("different deposit txs produced same hash")
	}
	if len(a) != 64 {
		t.Errorf("expected 64-char hash, got %d", len(a))
	}
}

func TestComputeClaimID_NilCampaign(t *testing.T) {
	camp := "camp1"
	withCampaign := ComputeClaimID("wallet1", &camp, 1700000000000)
	withoutCampaign := ComputeClaimID("wallet1", nil, 1700000000000)
	if withCampaign == withoutCampaign {
		t.Error("nil campaign should hash differently from set campaign")
	}
}
