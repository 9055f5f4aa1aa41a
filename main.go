package main

import "github.com/jsykora/bioindex/cmd"

func main() {
	cmd.Execute()
}
