package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"academic360-notifications/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	renderCmd := flag.NewFlagSet("render", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, updateCmd, validateCmd, renderCmd} {
		fs.StringVar(&registryPath, "path", "configs/email-templates.json", "Path to registry file")
	}

	// Add command flags
	idAdd := addCmd.String("id", "", "Template ID (e.g., fee-reminder)")
	displayName := addCmd.String("displayName", "", "Display Name")
	description := addCmd.String("description", "", "Description")
	subject := addCmd.String("subject", "", "Subject with {{key}} placeholders")
	body := addCmd.String("body", "", "Body with {{key}} placeholders")
	isHTML := addCmd.Bool("html", false, "Body is HTML")
	tags := addCmd.String("tags", "", "Comma separated tags")

	// Update command flags
	idUpdate := updateCmd.String("id", "", "Template ID to update")
	field := updateCmd.String("field", "", "Field to update (subject, body, displayName, description, html, dataSchema)")
	value := updateCmd.String("value", "", "New value for the field")

	// Render command flags
	idRender := renderCmd.String("id", "", "Template ID to render")
	dataJSON := renderCmd.String("data", "{}", "Template data as a JSON object")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *subject == "" || *body == "" {
			fmt.Println("Error: id, subject, and body are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		tmpl := registry.EmailTemplate{
			ID:          *idAdd,
			DisplayName: *displayName,
			Description: *description,
			Subject:     *subject,
			Body:        *body,
			IsHTML:      *isHTML,
			Tags:        splitTags(*tags),
		}
		if err := addTemplate(&tmpl); err != nil {
			fmt.Printf("Error adding template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added template: %s\n", *idAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" {
			fmt.Println("Error: id and field are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateTemplate(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated template %s, field %s\n", *idUpdate, *field)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(registryPath)
		if err == nil {
			err = reg.Validate()
		}
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d templates.\n", len(reg.Templates))

	case "render":
		renderCmd.Parse(os.Args[2:])
		if err := renderTemplate(*idRender, *dataJSON); err != nil {
			fmt.Printf("Error rendering template: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func addTemplate(tmpl *registry.EmailTemplate) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		reg = &registry.TemplateRegistry{Version: "1.0.0"}
	}

	if _, exists := reg.Lookup(tmpl.ID); exists {
		return fmt.Errorf("template with ID %s already exists", tmpl.ID)
	}

	reg.Templates = append(reg.Templates, *tmpl)
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return reg.Save(registryPath)
}

func updateTemplate(id, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	tmpl, ok := reg.Lookup(id)
	if !ok {
		return fmt.Errorf("template with ID %s not found", id)
	}

	switch field {
	case "subject":
		tmpl.Subject = value
	case "body":
		tmpl.Body = value
	case "displayName":
		tmpl.DisplayName = value
	case "description":
		tmpl.Description = value
	case "html":
		tmpl.IsHTML = value == "true"
	case "dataSchema":
		var schema map[string]interface{}
		if value != "" {
			if err := json.Unmarshal([]byte(value), &schema); err != nil {
				return fmt.Errorf("invalid dataSchema JSON: %w", err)
			}
		}
		tmpl.DataSchema = schema
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return reg.Save(registryPath)
}

func renderTemplate(id, dataJSON string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	tmpl, ok := reg.Lookup(id)
	if !ok {
		return fmt.Errorf("template with ID %s not found", id)
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return fmt.Errorf("invalid data JSON: %w", err)
	}

	fmt.Printf("Subject: %s\n\n%s\n", registry.Render(tmpl.Subject, data), registry.Render(tmpl.Body, data))
	return nil
}

func splitTags(raw string) []string {
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func help() {
	fmt.Print(`
Usage: template-registry <command> [flags]

Commands:
  add       Add a new email template to the registry
  update    Update an existing template's field
  validate  Validate the registry file
  render    Render a template with sample data
  help      Show this help message

Examples:
  template-registry add -id fee-reminder -subject "Fee due" -body "Pay {{amount}} by {{dueDate}}" -tags fee
  template-registry update -id fee-reminder -field dataSchema -value '{"type":"object","required":["amount"]}'
  template-registry render -id fee-reminder -data '{"amount":"12500","dueDate":"31 Mar"}'
  template-registry validate -path configs/email-templates.json

Use 'template-registry <command> -h' for more information about a command.

`)
}
