// Package textutil holds the text helpers behind transcript search and
// import file naming.
//
// Search scoring works on sparse term vectors: Terms folds case and Unicode
// form before splitting, so "Café" typed on a phone and "cafe" spoken into
// whisper land on the same term. Slug and SafeFileName turn arbitrary
// user-supplied names into path fragments.
package textutil
