// Package tailclient reads a tailgate log stream over HTTP.
//
// The stream is Server-Sent Events: each event carries the record's sequence
// number as its id and the JSON record as its data. [Client.Follow]
// reconnects after transient failures and resumes from the last delivered
// sequence number, so no buffered record is repeated or skipped unless the
// server has already evicted it.
package tailclient
