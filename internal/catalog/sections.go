package catalog

func init() {
	register(Entry{
		Type:    BusinessPlan,
		Title:   "Business Plan",
		Version: 1,
		Sections: []Section{
			{
				Name:  "executive_summary",
				Title: "Executive Summary",
				Order: 1,
				InstructionTemplate: `Write the executive summary of a business plan for {{.CompanyName}}, a company in the {{.Industry}} industry.
Summarize the offering ({{.ProductDescription}}), the target market ({{.TargetMarket}}) and what makes the business viable.
{{if .FundingGoal}}Mention that the company is raising {{.FundingGoal}}.{{end}}`,
			},
			{
				Name:  "company_description",
				Title: "Company Description",
				Order: 2,
				InstructionTemplate: `Describe {{.CompanyName}}: its mission, legal structure, location{{if .Location}} ({{.Location}}){{end}} and stage.
Industry: {{.Industry}}.{{if .Notes}} Additional context from the client: {{.Notes}}{{end}}`,
			},
			{
				Name:  "market_analysis",
				Title: "Market Analysis",
				Order: 3,
				InstructionTemplate: `Write a market analysis for {{.CompanyName}} covering market size, trends and the competitive landscape of the {{.Industry}} industry.
Focus on this target market: {{.TargetMarket}}.`,
			},
			{
				Name:  "products_services",
				Title: "Products and Services",
				Order: 4,
				InstructionTemplate: `Describe the products and services of {{.CompanyName}}: {{.ProductDescription}}.
Explain the value delivered to {{.TargetMarket}} and the pricing approach.`,
			},
			{
				Name:  "marketing_sales",
				Title: "Marketing and Sales Strategy",
				Order: 5,
				InstructionTemplate: `Outline how {{.CompanyName}} will reach and convert {{.TargetMarket}}.
Cover positioning, acquisition channels and the sales process.`,
			},
			{
				Name:  "financial_projections",
				Title: "Financial Projections",
				Order: 6,
				InstructionTemplate: `Produce a three year financial projection narrative for {{.CompanyName}} in the {{.Industry}} industry.
{{if .FundingGoal}}Explain how the {{.FundingGoal}} raise will be used.{{else}}Assume the business is self funded.{{end}}`,
			},
		},
	})

	register(Entry{
		Type:    MarketingPlan,
		Title:   "Marketing Plan",
		Version: 1,
		Sections: []Section{
			{
				Name:  "situation_analysis",
				Title: "Situation Analysis",
				Order: 1,
				InstructionTemplate: `Write the situation analysis of a marketing plan for the brand {{.BrandName}}, which sells {{.Product}}.
Describe the current market position and the main opportunities.`,
			},
			{
				Name:  "target_audience",
				Title: "Target Audience",
				Order: 2,
				InstructionTemplate: `Define the target audience for {{.BrandName}}: {{.Audience}}.
Describe personas, needs and buying triggers.`,
			},
			{
				Name:  "positioning",
				Title: "Positioning and Messaging",
				Order: 3,
				InstructionTemplate: `Write the positioning statement and key messages for {{.Product}} by {{.BrandName}} aimed at {{.Audience}}.`,
			},
			{
				Name:  "channel_strategy",
				Title: "Channel Strategy",
				Order: 4,
				InstructionTemplate: `Plan the channel mix for {{.BrandName}} using these channels: {{range $i, $c := .Channels}}{{if $i}}, {{end}}{{$c}}{{end}}.
Explain the role of each channel in the funnel.`,
			},
			{
				Name:  "budget_kpis",
				Title: "Budget and KPIs",
				Order: 5,
				InstructionTemplate: `Allocate a marketing budget{{if .Budget}} of {{.Budget}}{{end}} for {{.BrandName}} across the planned channels and define measurable KPIs for each.`,
			},
		},
	})
}
