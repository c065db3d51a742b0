package main

import (
	"log"

	"github.com/ValentinKolb/filegate/cmd/fgc/cmd"
)

func main() {
	if err := cmd.NewRoot().Execute(); err != nil {
		log.Printf("exec cmd failed, err:%v", err)
	}
}
