package events

// Topic constants for domain events emitted by the platform.
const (
	TopicDealActivated   = "deal.activated"
	TopicDealRemoved     = "deal.removed"
	TopicBasketItemAdded = "basket.item_added"
	TopicReceiptCreated  = "receipt.created"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicDealActivated,
		TopicDealRemoved,
		TopicBasketItemAdded,
		TopicReceiptCreated,
	}
}
