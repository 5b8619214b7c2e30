package domain

import "context"

// Signer is the secrets-custody boundary. It derives keys and signs payment
// descriptors without ever exposing key material to this service.
type Signer interface {
	Sign(ctx context.Context, tenantID string, chain ChainName, desc *PaymentDescriptor) (*SignedPayment, error)
}
