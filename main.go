package main

import "github.com/frahmantamala/isp-billing/cmd"

func main() {
	cmd.Execute()
}
