// Package http is the transport used by the ITSM connectors: a rate
// limited, retrying JSON client with pluggable authentication and
// Link-header cursor extraction.
package http
