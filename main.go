package main

import "github.com/ValentinKolb/sqkv/cmd"

func main() {
	cmd.Execute()
}
