package models

// Source records which confirmation channel applied a payment.
type Source string

const (
	SourceDirect  Source = "direct"
	SourceWebhook Source = "webhook"
)

func (s Source) IsValid() bool {
	return s == SourceDirect || s == SourceWebhook
}

// Trust records where a payment's event list came from. Authoritative lists
// were read back from the gateway's order; fallback lists were supplied by the
// client because the order could not be read at confirmation time.
type Trust string

const (
	TrustAuthoritative Trust = "authoritative"
	TrustFallback      Trust = "fallback"
)

func (t Trust) IsValid() bool {
	return t == TrustAuthoritative || t == TrustFallback
}
