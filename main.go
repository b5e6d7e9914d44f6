package main

import "github.com/keanucz/maktabdl/cmd"

func main() {
	cmd.Execute()
}
