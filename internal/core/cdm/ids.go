package cdm

import (
	"fmt"
	"strings"
)

// Canonical field paths shared by the connector.
const (
	FieldID        = "id"
	FieldDisplayID = "displayId"
)

// RecordID builds the CDM identifier of a record.
// ID format: cdm:itsm:<content_type>:<source_system>:<external_id>
func RecordID(sourceSystem, contentType, externalID string) string {
	return fmt.Sprintf("cdm:itsm:%s:%s:%s", strings.ToLower(contentType), sourceSystem, externalID)
}
