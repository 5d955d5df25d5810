/*
Copyright © 2026 NAME HERE
*/
package main

import "github.com/masnyjimmy/qvalidate/cmd"

func main() {
	cmd.Execute()
}
