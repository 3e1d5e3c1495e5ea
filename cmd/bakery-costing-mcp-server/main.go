package main

import (
	"fmt"
	"os"

	"github.com/padoca-app/bakery-costing-mcp-server/internal/cmd"
)

func main() {
	err := cmd.Run()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
