// Package value provides the generic name→value property bag used to move
// entity properties in and out of the engine.
//
// Properties round-trip through an Object when they are diffed, journaled,
// or handed to a repository. This package imports nothing internal so every
// other package may depend on it.
//
// Key design constraints:
//   - Value is sealed: only Null, String, Int, Float, Bool, Array and Object
//   - Object keys iterate in RFC 8785 order (UTF-16 code units)
//   - Canonical JSON is NFC normalized, compact and never HTML escaped
//   - Floats always serialize with a fraction or exponent so they decode as
//     Float, never as Int
package value
