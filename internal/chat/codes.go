package chat

import gonanoid "github.com/jaevor/go-nanoid"

const codeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newCodeGenerator returns a generator of short, human-shareable room
// codes. 10 chars over a 36-symbol alphabet keeps collisions rare; the
// create path still retries on conflict.
func newCodeGenerator() func() string {
	gen, err := gonanoid.CustomASCII(codeAlphabet, 10)
	if err != nil {
		panic(err) // static alphabet and length, cannot fail
	}
	return gen
}
