package main

import "github.com/audiotailoc/ms-go-payments/cmd"

func main() {
	cmd.Execute()
}
