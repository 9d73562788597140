/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/azaurus1/fanet/cmd"

func main() {
	cmd.Execute()
}
