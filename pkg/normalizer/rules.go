package normalizer

import (
	"strings"

	"github.com/ajitpratap0/nebula-hub/pkg/models"
)

// entityRule maps table-name keywords to an entity type
type entityRule struct {
	keywords []string
	entity   models.EntityType
}

// entityRules are evaluated in order and the first match wins.
// "customer_orders" must resolve to order, so order precedes customer.
var entityRules = []entityRule{
	{[]string{"user", "account", "profile"}, models.EntityUser},
	{[]string{"product", "item", "sku"}, models.EntityProduct},
	{[]string{"order", "sale"}, models.EntityOrder},
	{[]string{"customer", "client"}, models.EntityCustomer},
	{[]string{"transaction", "payment"}, models.EntityTransaction},
	{[]string{"invoice", "bill"}, models.EntityInvoice},
	{[]string{"ticket", "issue"}, models.EntityTicket},
	{[]string{"article", "post", "blog"}, models.EntityArticle},
	{[]string{"message", "chat", "email"}, models.EntityMessage},
	{[]string{"log", "audit", "event"}, models.EntityLog},
}

var (
	titleFields       = []string{"title", "name", "subject", "heading", "label"}
	descriptionFields = []string{"description", "content", "body", "text", "summary", "details"}
	timestampFields   = []string{"created_at", "updated_at", "timestamp", "date", "created", "modified"}

	// sensitiveFragments exclude a field from searchable text
	sensitiveFragments = []string{"password", "secret", "token", "hash", "salt", "key"}
	// textFragments mark a field as searchable
	textFragments = []string{
		"name", "title", "description", "content", "body", "text",
		"message", "comment", "notes", "summary", "address", "email",
	}
)

const tagSeparators = ",;|"

// DetectEntityType classifies a table by keywords in its name
func DetectEntityType(tableName string) models.EntityType {
	name := strings.ToLower(tableName)
	for _, rule := range entityRules {
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) {
				return rule.entity
			}
		}
	}
	return models.EntityUnknown
}
