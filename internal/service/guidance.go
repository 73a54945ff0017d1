package service

import "driveprov/internal/model"

// Guidance returns the instructions for the steps no API can perform: creating the
// Apps Script library project and attaching it to the template.
func Guidance(res model.ProvisionResult, n Names) []string {
	return []string{
		"",
		"=== IMPORTANT INFORMATION ===",
		"1. Google Sheets template:",
		"   ID: " + res.DocumentID,
		"   URL: " + res.DocumentURL,
		"",
		"2. To create the Apps Script library project:",
		"   - Go to https://script.google.com",
		"   - Create a new project",
		"   - Name it: " + n.Library,
		"   - Note the Script ID from the URL or the project settings",
		"",
		"3. To add the library to the template:",
		"   - Open the template",
		"   - Extensions > Apps Script",
		"   - Libraries > Add a library",
		"   - Paste the Script ID of the library",
	}
}
