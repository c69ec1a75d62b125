// Command nachos boots the simulated machine and runs user programs or the
// kernel self tests on it.
package main

import "github.com/sarchlab/nachosim/cmd/nachos/cmd"

func main() {
	cmd.Execute()
}
