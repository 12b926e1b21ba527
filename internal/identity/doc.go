// Package identity derives canonical record identifiers and store-relative
// paths for audio files.
//
// Every audio file maps to a 14-digit YYYYMMDDHHMMSS id and a forward-slash
// path relative to the notes root. Both functions are pure so that different
// spellings of one file (extended-length prefixes, mixed separators, Unicode
// normalization forms) resolve to the same record.
package identity
