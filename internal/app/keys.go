package app

import (
	"github.com/go-gl/glfw/v3.3/glfw"

	"mapviewer/internal/explore"
)

// actions are the exploration shortcuts. Each one goes through the navigator,
// so all of them are refused while a navigation is underway.
var actions = map[glfw.Key]func(*explore.Navigator) error{
	glfw.KeyR: func(n *explore.Navigator) error {
		_, err := n.Randomize()
		return err
	},
	glfw.KeyH: (*explore.Navigator).ReturnHome,
	glfw.Key1: visit(0),
	glfw.Key2: visit(1),
	glfw.Key3: visit(2),
	glfw.Key4: visit(3),
}

func visit(i int) func(*explore.Navigator) error {
	return func(n *explore.Navigator) error { return n.Visit(i) }
}
