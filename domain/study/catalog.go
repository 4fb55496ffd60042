package study

// AITutorStudy returns the attribute table of the AI tutor conjoint survey.
// Attribute names are the column stems used in the wide export (A_<Name><task>).
func AITutorStudy() *Study {
	return &Study{
		Name: "ai-tutor",
		Attributes: []Attribute{
			{
				Name:    "Tutor",
				Display: "Tutor",
				Levels: []Level{
					{Code: "female_tutor", Label: "Female AI tutor", Match: []string{"Female"}},
					{Code: "male_tutor", Label: "Male AI tutor", Match: []string{"Male AI"}},
				},
			},
			{
				Name:    "Color_palette",
				Display: "Color palette",
				Levels: []Level{
					{Code: "friendly_colors", Label: "Friendly & warm (coral / lavender / peach)", Match: []string{"Friendly & warm", "Friendly"}},
					{Code: "tech_colors", Label: "Tech & bold (deep blue / black / neon)", Match: []string{"Tech & bold", "Tech"}},
				},
			},
			{
				Name:    "Pricing",
				Display: "Pricing",
				Levels: []Level{
					{Code: "school_pays", Label: "School pays (free for families)", Match: []string{"School pays"}},
					{Code: "pricing_4_99", Label: "Free trial + $4.99/month", Match: []string{"$4.99"}},
					{Code: "pricing_7_99", Label: "Free trial + $7.99/month", Match: []string{"$7.99"}},
					{Code: "pricing_9_99", Label: "Free trial + $9.99/month", Match: []string{"$9.99"}},
					{Code: "pricing_12_99", Label: "Free trial + $12.99/month", Match: []string{"$12.99"}},
				},
			},
			{
				Name:    "Message_success_",
				Display: "Success message",
				Levels: []Level{
					{Code: "growth_message", Label: "Great job — your effort and persistence helped you solve this!", Match: []string{"effort and persistence"}},
					{Code: "brilliance_message", Label: "You solved it so quickly — you must have a really special talent for science!", Match: []string{"special talent"}},
				},
			},
			{
				Name:    "Message_failure_",
				Display: "Failure message",
				Levels: []Level{
					{Code: "supportive_message", Label: "That didn't work, but mistakes are how scientists learn. Let's try another design.", Match: []string{"mistakes are how scientists learn"}},
					{Code: "neutral_message", Label: "This design didn't launch successfully. Here is what went wrong.", Match: []string{"Here is what went wrong"}},
				},
			},
			{
				Name:    "Storytelling",
				Display: "Storytelling",
				Levels: []Level{
					{Code: "space_rescue_story", Label: `Space rescue story: "Your spaceship must deliver medicine to astronauts stranded on the Moon before their oxygen runs out."`, Match: []string{"Space rescue story"}},
					{Code: "no_story", Label: "No story: Just design and test rockets in a sandbox-style game.", Match: []string{"No story"}},
				},
			},
			{
				Name:    "Role_play",
				Display: "Role play",
				Levels: []Level{
					{Code: "hero_astronaut", Label: "Hero astronaut: You are the astronaut in charge — the team is counting on you to complete this mission.", Match: []string{"Hero astronaut"}},
					{Code: "no_specific_role", Label: "No specific role: Just design a rocket and see how it works.", Match: []string{"No specific role"}},
				},
			},
		},
	}
}
