// Package retriever reads change log entries back out, filtered and in
// a deterministic order, with stored values restored to their declared
// types.
//
// An entry whose stored value can no longer be deserialized (for
// example a custom type handler that was removed after the data was
// written) is not dropped and does not fail the query: it is returned
// with DecodeErr set and its raw stored forms intact.
package retriever
