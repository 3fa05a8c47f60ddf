package identity

import (
	"fmt"
	"math/rand/v2"
)

var pseudonymAdjectives = []string{
	"Amber", "Brave", "Breezy", "Bright", "Calm", "Cheery", "Clever", "Cosmic",
	"Dapper", "Eager", "Gentle", "Golden", "Happy", "Humble", "Jolly", "Keen",
	"Lively", "Lucky", "Mellow", "Merry", "Mighty", "Nimble", "Peppy", "Plucky",
	"Quiet", "Radiant", "Rosy", "Silver", "Snappy", "Spry", "Sturdy", "Sunny",
	"Swift", "Tranquil", "Velvet", "Vivid", "Wandering", "Warm", "Witty", "Zesty",
}

var pseudonymNouns = []string{
	"Badger", "Beacon", "Bison", "Comet", "Crane", "Dolphin", "Falcon", "Fern",
	"Finch", "Firefly", "Fox", "Gazelle", "Heron", "Ibis", "Koala", "Lantern",
	"Lemur", "Lynx", "Maple", "Meadow", "Narwhal", "Orca", "Otter", "Owl",
	"Panda", "Pebble", "Penguin", "Petrel", "Puffin", "Quokka", "Raven", "Reef",
	"Robin", "Sparrow", "Sprout", "Tanager", "Thistle", "Walrus", "Willow", "Wren",
}

// NewPseudonym returns one candidate from the adjective-noun-number template,
// e.g. "MellowOtter417". Uniqueness is enforced by the store's unique index,
// not here; callers retry on conflict.
func NewPseudonym() string {
	adj := pseudonymAdjectives[rand.IntN(len(pseudonymAdjectives))]
	noun := pseudonymNouns[rand.IntN(len(pseudonymNouns))]
	return fmt.Sprintf("%s%s%d", adj, noun, rand.IntN(900)+100)
}
