package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/catalog"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/endpoint"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/signals"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/webhook"
)

// runDemo walks one payment through the whole pipeline: decode the raw
// transaction, mint its receipt, feed the signal collectors, cast the
// payer's vote, recalculate, and print the resulting score. Everything is
// synthetic and local; no ledger connection is made.
func (n *node) runDemo(ctx context.Context) error {
	payer := demoKey(0x01)
	recipient := demoKey(0x02)
	raw := demoTransaction(payer, recipient, 800_000)

	// Deliver the transaction the way a payment monitor would, signed.
	sig := webhook.Sign([]byte(n.cfg.WebhookSecret), raw)
	fact, err := n.ingest(ctx, raw, sig)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	fmt.Printf("decoded payment: %s -> %s, %d units\n", fact.Payer, fact.Recipient, fact.Amount)

	receiptID, err := n.registry.CreateReceipt(ctx, fact, contracts.ContentCompute, fact.Payer)
	if err != nil {
		return fmt.Errorf("create receipt: %w", err)
	}
	n.obs.RecordReceiptCreated(ctx)
	fmt.Printf("receipt minted: %s\n", receiptID)

	// Seed the collectors the way indexers and monitors would.
	if _, err := n.collectors.Attestations.Add(signals.Attestation{
		Subject: fact.Recipient,
		Issuer:  "did:web:registry.example",
		Kind:    "identity",
	}); err != nil {
		return err
	}
	if _, err := n.collectors.Staking.AddPosition(signals.StakePosition{
		Staker:  fact.Payer,
		Subject: fact.Recipient,
		Amount:  50_000,
	}); err != nil {
		return err
	}
	for i := 0; i < 20; i++ {
		n.collectors.Telemetry.RecordCall(signals.CallOutcome{
			Subject:   fact.Recipient,
			Success:   i%10 != 9,
			LatencyMs: 120 + float64(i%5),
		})
	}
	n.collectors.Reviews.Add(signals.Review{Subject: fact.Recipient, Reviewer: fact.Payer, Rating: 45})

	v, err := n.engine.CastVote(ctx, receiptID, fact.Payer, fact.Recipient,
		contracts.VoteUpvote,
		contracts.QualityScores{ResponseQuality: 90, ResponseSpeed: 85, Accuracy: 92, Professionalism: 88},
		"fast and accurate",
	)
	if err != nil {
		return fmt.Errorf("cast vote: %w", err)
	}
	n.obs.RecordVoteCast(ctx)
	fmt.Printf("vote cast: %s, weight %d\n", v.VoteID, v.VoteWeight)

	score, err := n.aggregator.Recalculate(ctx, fact.Recipient)
	if err != nil {
		return fmt.Errorf("recalculate: %w", err)
	}
	n.obs.RecordRecalculation(ctx)
	fmt.Printf("reputation: overall %.2f (trust %.1f, quality %.1f, reliability %.1f, economic %.1f, social %.1f, staking %.1f)\n",
		score.Overall,
		score.Components.Trust, score.Components.Quality, score.Components.Reliability,
		score.Components.Economic, score.Components.Social, score.Components.Staking,
	)

	rec, err := n.scorer.RecordCall(ctx, endpoint.CallReport{
		Endpoint:       "https://agent.example/v1/infer",
		Owner:          fact.Recipient,
		Success:        true,
		ResponseTimeMs: 120,
		PricePaid:      0.8,
		MarketPrice:    1.0,
	})
	if err != nil {
		return fmt.Errorf("endpoint call: %w", err)
	}
	fmt.Printf("endpoint trust: %.2f, tier %s\n", rec.TrustScore, rec.Tier)

	top, err := n.aggregator.GetTopSubjects(ctx, 5)
	if err != nil {
		return err
	}
	fmt.Println("leaderboard:")
	for i, s := range top {
		fmt.Printf("  %d. %s  %.2f (%s)\n", i+1, s.Subject, s.Overall, s.Trend)
	}
	return nil
}

// demoKey builds a printable 32-byte account address.
func demoKey(fill byte) string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = fill
	}
	return base58.Encode(key)
}

// demoTransaction serializes a minimal legacy transaction carrying one
// checked token transfer from payer to recipient.
func demoTransaction(payer, recipient string, amount uint64) []byte {
	payerKey, _ := base58.Decode(payer)
	recipientKey, _ := base58.Decode(recipient)
	programKey, _ := base58.Decode(catalog.TokenProgram)
	sourceKey := make([]byte, 32)
	sourceKey[0] = 0xaa
	mintKey := make([]byte, 32)
	mintKey[0] = 0xbb

	var buf []byte
	buf = append(buf, 1) // one signature
	sig := make([]byte, 64)
	copy(sig, []byte(time.Now().Format(time.RFC3339Nano)))
	buf = append(buf, sig...)

	buf = append(buf, 1, 0, 1)                // header
	buf = append(buf, 5)                      // five account keys
	buf = append(buf, payerKey...)            // 0: fee payer
	buf = append(buf, sourceKey...)           // 1: source token account
	buf = append(buf, mintKey...)             // 2: mint
	buf = append(buf, recipientKey...)        // 3: destination
	buf = append(buf, programKey...)          // 4: token program
	buf = append(buf, make([]byte, 32)...)    // blockhash

	buf = append(buf, 1)          // one instruction
	buf = append(buf, 4)          // program index
	buf = append(buf, 3, 1, 2, 3) // accounts: source, mint, dest
	data := make([]byte, 10)
	data[0] = 12 // TransferChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = 6 // decimals
	buf = append(buf, byte(len(data)))
	buf = append(buf, data...)
	return buf
}
