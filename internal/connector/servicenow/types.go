package servicenow

import (
	"time"

	"github.com/nucleus/itsm-core/internal/core"
)

// SourceSystem names the external system in record identifiers.
const SourceSystem = "servicenow"

// Config holds ServiceNow connection configuration.
type Config struct {
	// BaseURL is the instance URL (e.g., https://acme.service-now.com)
	BaseURL string `json:"baseUrl"`

	// AccessToken takes precedence over Username and Password.
	AccessToken string `json:"accessToken,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`

	// Tenant selects tenant specific field mappings.
	Tenant string `json:"tenant,omitempty"`

	// CatalogID scopes service catalog category listings.
	CatalogID string `json:"catalogId,omitempty"`
	// CategoryID scopes service catalog item listings.
	CategoryID string `json:"categoryId,omitempty"`
	// ItemID fetches a single service catalog item.
	ItemID string `json:"itemId,omitempty"`

	// PageSize is the number of primary records per request.
	PageSize int `json:"pageSize,omitempty"`
	// RelatedPageSize is the number of related records per join request.
	RelatedPageSize int `json:"relatedPageSize,omitempty"`

	// DateOffset is added to date range bounds before they are encoded,
	// for instances whose scripted date generation is not in UTC.
	DateOffset time.Duration `json:"dateOffset,omitempty"`

	RateLimit       float64       `json:"rateLimit,omitempty"`
	Timeout         time.Duration `json:"timeout,omitempty"`
	MaxRetries      int           `json:"maxRetries,omitempty"`
	JoinConcurrency int           `json:"joinConcurrency,omitempty"`

	// LinkRequestItems creates a request item for every created request.
	LinkRequestItems bool `json:"linkRequestItems,omitempty"`
	// GenericCatalogItem is the catalog item name attached to those items.
	GenericCatalogItem string `json:"genericCatalogItem,omitempty"`
}

const (
	DefaultPageSize        = 200
	DefaultRelatedPageSize = 10000
	DefaultCatalogItem     = "Generic Service Request (I need...)"
)

// Validate checks required settings and fills defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return &core.ConfigurationError{Reason: "baseUrl: required"}
	}
	if c.AccessToken == "" && (c.Username == "" || c.Password == "") {
		return &core.ConfigurationError{Reason: "credentials: set accessToken or username and password"}
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.RelatedPageSize <= 0 {
		c.RelatedPageSize = DefaultRelatedPageSize
	}
	if c.GenericCatalogItem == "" {
		c.GenericCatalogItem = DefaultCatalogItem
	}
	return nil
}

// =============================================================================
// TABLES AND APPEND KEYS
// =============================================================================

const (
	tableJournal     = "sys_journal_field"
	tableCmdbCI      = "cmdb_ci"
	tableUserGroup   = "sys_user_group"
	tableUser        = "sys_user"
	tableRequestItem = "sc_req_item"
	tableCatalogItem = "sc_cat_item"

	tablePath   = "/api/now/table/"
	catalogPath = "/api/sn_sc/servicecatalog/"

	resourceCatalogs   = "catalogs"
	resourceCategories = "categories"
	resourceItems      = "items"
)

// Keys under which joined documents are attached to primaries.
const (
	AppendComments        = "_comments"
	AppendCmdbCI          = "_cmdb_ci"
	AppendAssignmentGroup = "_assignment_group"
	AppendAssignedTo      = "_user_assigned_to"
	AppendReporter        = "_user_reporter"
	AppendItems           = "_items"
)

const (
	paramLimit    = "sysparm_limit"
	paramQuery    = "sysparm_query"
	paramCategory = "sysparm_category"

	fieldSysID = "sys_id"
)
