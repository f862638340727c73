package main

import (
	"context"
	"fmt"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/webhook"
)

// ingest accepts a raw transaction delivered by an external payment monitor,
// checks the delivery signature when a shared secret is configured, and
// decodes it into a transaction fact ready for receipt minting.
func (n *node) ingest(_ context.Context, body []byte, signature string) (*contracts.TransactionFact, error) {
	if n.cfg.WebhookSecret != "" {
		if err := webhook.Verify([]byte(n.cfg.WebhookSecret), body, signature); err != nil {
			return nil, fmt.Errorf("webhook delivery rejected: %w", err)
		}
	}
	return n.decoder.Decode(body, nil)
}
