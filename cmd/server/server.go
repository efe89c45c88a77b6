package main

import (
	"net/http"
	"os"

	"github.com/matryer/way"
	log "github.com/sirupsen/logrus"

	"cuberace/server"
)

type Server struct {
	router     *way.Router
	GameServer *server.GameServer
}

func main() {
	cfg := server.LoadConfig()
	gs, err := server.NewGameServer(cfg)
	if err != nil {
		log.Fatalln("cannot start without a valid map:", err)
	}
	Server := Server{
		GameServer: gs,
	}
	go Server.GameServer.Loop()
	Server.routes()
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		log.Printf("Defaulting to port %s", port)
	}
	log.Fatalln(http.ListenAndServe(":"+port, Server.router))
}
