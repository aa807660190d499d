package main

import "github.com/fatih/color"

var (
	successColor = color.New(color.FgGreen, color.Bold)
	failureColor = color.New(color.FgRed, color.Bold)
	skippedColor = color.New(color.FgCyan)
	headerColor  = color.New(color.Bold)
)
