package main

//go:generate swag init -g cmd/tracker/main.go -o docs

// @title           Buy Box Tracker API
// @version         0.1.0
// @description     Competitive offer collection, Buy Box ownership history, insights and manual competitor monitoring.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
