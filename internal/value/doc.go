// Package value provides the constrained JSON-like values held in application
// state: domain items, the user profile, action payloads and cache data.
//
// The value set is closed. Only Null, String, Int, Bool, Array and Object
// implement Value, which lets Equal compare any two values structurally with a
// type switch instead of a generic deep comparison.
//
// Key design constraints:
//   - NO float types - use Int for numbers so equality and hashing are exact
//   - Object key order never matters: Equal and MarshalCanonical are order-free
//   - This package imports nothing internal
package value
