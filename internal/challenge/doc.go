// Package challenge generates emoji picture-matching challenges from a fixed
// concept vocabulary, with difficulty levels controlling the option count.
package challenge
