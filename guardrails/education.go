package guardrails

// Guidance 受限内容的教育引导
type Guidance struct {
	Category       string   `json:"category"`
	Message        string   `json:"message"`
	RedirectTopics []string `json:"redirect_topics"`
}

var guidanceTemplates = map[string]Guidance{
	EducationViolence: {
		Message:        "I understand you're curious about this topic. While I can provide educational context, I believe our conversations are more meaningful when focused on positive subjects that help you grow. Would you like to discuss something more constructive?",
		RedirectTopics: []string{"conflict resolution", "peace studies", "history", "problem solving"},
	},
	EducationSelfHarm: {
		Message:        "It sounds like things might feel really heavy right now. You don't have to go through it alone. Talking with someone you trust or a local crisis line can help, and I'm here to listen too.",
		RedirectTopics: []string{"coping strategies", "people you trust", "things that bring you comfort"},
	},
	EducationDrugs: {
		Message:        "I can help you understand the science behind substances and their effects on the body and mind. This is important knowledge for making informed decisions. What interests you most?",
		RedirectTopics: []string{"health science", "biology", "chemistry", "wellness"},
	},
	EducationIllegal: {
		Message:        "I understand you might be curious about these topics. I can share context about laws and their purposes, but our conversations are more valuable when focused on constructive subjects. What would you like to learn about instead?",
		RedirectTopics: []string{"law and society", "ethics", "civics", "social studies"},
	},
	EducationExplicit: {
		Message:        "These subjects are part of human experience and are discussed in educational contexts like health, psychology, and biology. I'd love to help you learn in a positive way. What other topics interest you?",
		RedirectTopics: []string{"health education", "psychology", "biology", "relationships"},
	},
	EducationHateSpeech: {
		Message:        "It's important to learn about diversity, inclusion, and how to communicate respectfully. I'd love to help you understand these topics in a positive, educational way. What would you like to know about?",
		RedirectTopics: []string{"diversity and inclusion", "communication", "social studies", "ethics"},
	},
	EducationGeneral: {
		Message:        "Let's keep our conversation clear and friendly. What would you like to talk about?",
		RedirectTopics: []string{"hobbies", "something you learned recently", "your goals"},
	},
}

// GuidanceFor 返回类别对应的教育引导，未知类别使用 general
func GuidanceFor(category string) Guidance {
	g, ok := guidanceTemplates[category]
	if !ok {
		category = EducationGeneral
		g = guidanceTemplates[EducationGeneral]
	}
	g.Category = category
	g.RedirectTopics = append([]string(nil), g.RedirectTopics...)
	return g
}
