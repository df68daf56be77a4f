// Package servicenow connects the fetch pipeline and the mapping engine to
// the ServiceNow table and service catalog REST APIs.
//
// Reads go through the paginated pipeline: a page of primary records is
// fetched with an encoded query, enriched with the related records planned
// for its content type (journal comments, configuration items, groups,
// users, request items) and optionally converted to canonical records.
// Writes map a canonical record to a table document and POST or PUT it,
// subject to the creatable and modifiable flags of the content type.
package servicenow
