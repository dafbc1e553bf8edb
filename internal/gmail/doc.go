// Package gmail provides a read-only client for extracting message metadata
// from a user's mailbox.
//
// A client is built from a per-user credential artifact; access token refresh
// is delegated entirely to the oauth2 library. Message listing is paginated
// and each message is fetched in metadata format (headers and snippet only,
// never the body). Requests are rate limited conservatively to stay below
// Gmail quota units.
package gmail
