package validation

// HTTP body limits
const (
	// MaxBodySize bounds JSON API request bodies (64 KB).
	MaxBodySize = 64 * 1024

	// MaxWebhookBodySize bounds gateway webhook deliveries. Payment entities
	// with notes stay well below this.
	MaxWebhookBodySize = 256 * 1024
)

const (
	// MaxEventNames is the maximum number of events in a single order.
	MaxEventNames = 50

	// MaxIDLength bounds user, order and payment identifiers.
	MaxIDLength = 128
)
