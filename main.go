/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/cliptube/accounts/cmd"

func main() {
	cmd.Execute()
}
