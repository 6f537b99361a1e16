// Package tokenizer lexes HTTP parameterized field values using Shape's tokenizer framework.
//
// It covers the `value *( OWS ";" OWS name "=" value )` shape shared by
// media types (Content-Type) and Content-Disposition.
package tokenizer

// Token type constants for parameterized field values.
const (
	TokenText      = "Text"      // run of characters other than delimiters
	TokenQuoted    = "Quoted"    // quoted-string including its quotes
	TokenSemicolon = "Semicolon" // ;
	TokenEquals    = "Equals"    // =
	TokenOWS       = "OWS"       // run of SP / HTAB
)
