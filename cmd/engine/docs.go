package main

//go:generate swag init -g cmd/engine/main.go -o docs

// @title           Evotrade Engine API
// @version         0.1.0
// @description     Simulated order execution, portfolio accounting, and strategy fitness controls.
// @host            localhost:8080
// @BasePath        /
// @schemes         http

// @securityDefinitions.apikey BearerAuth
// @in   header
// @name Authorization
