// Command qu administers a qu job queue and runs its admin API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gabteles/qu-mongoid/internal/cli"
)

func main() {
	if err := cli.NewRoot().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "qu:", err)
		os.Exit(1)
	}
}
