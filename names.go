package puckroom

import "math/rand/v2"

var (
	nameAdjectives = []string{"Happy", "Sad", "Angry", "Excited", "Silly", "Grumpy", "Sleepy", "Hungry", "Tired"}
	nameNouns      = []string{"Panda", "Cat", "Dog", "Elephant", "Tiger", "Lion", "Bear", "Wolf", "Fox", "Rabbit"}
)

// randomName returns a display name such as "SleepyFox".
func randomName() string {
	return nameAdjectives[rand.IntN(len(nameAdjectives))] + nameNouns[rand.IntN(len(nameNouns))]
}
