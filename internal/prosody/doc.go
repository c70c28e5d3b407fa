// Package prosody derives per-word RSVP timing from plain text.
//
// Everything here is pure: a token goes in, a Word with a pivot, a base
// delay and prosody hints comes out. Standalone punctuation tokens are folded
// into the preceding word so the reader never sees a lone comma.
package prosody
