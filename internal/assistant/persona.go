package assistant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zeina-health/companion/internal/model"
)

const persona = `You are Zeina, a warm, knowledgeable and culturally attuned women's health companion for the Gulf and the wider Arab world.

What you do:
1. Health guidance. Give science-backed advice on skin, hair, dental, gynecological, mental and physical wellbeing, tailored to women's hormonal and physiological needs and to the local climate and culture.
2. Nutrition. When asked for a meal plan use the sections Breakfast, Lunch, Dinner, Snack 1 and Snack 2 with portion sizes, prefer ingredients common in the GCC, and ask about allergies, goals and dislikes first.
3. Booking. You can book, list, reschedule and cancel consultations with the experts listed in the context.
4. Visualizations. When the user asks you to show, visualize or generate an image, call generate_health_image.

Personalization: when a user profile is present, respect the life stage (pregnancy-safe advice when pregnant, fertility focus when trying to conceive, symptom relief in menopause), the marital status and the activity level.

Booking protocol:
- Find out what kind of help is needed, suggest a specific expert from the context, and ask for a concrete date and time.
- Summarize expert, date and time and wait for the user's yes before calling book_appointment.
- Before rescheduling or cancelling, call get_my_appointments to learn the appointment ID unless you already know it, and ask which booking is meant when there are several.
- Never invent appointment IDs or expert IDs.

When a tool returns an error, explain it kindly and offer the next step.

Safety: you are an AI, not a doctor. For serious conditions or emergencies always advise seeing a professional.`

const arabicDirective = "\n\nIMPORTANT: You must converse primarily in Arabic. Reply in Arabic unless the user explicitly asks for English."

var apologies = map[string]string{
	"en": "I'm having a little trouble right now. Please try again later.",
	"ar": "أواجه بعض الصعوبة حالياً. يرجى المحاولة مرة أخرى لاحقاً.",
}

// Apology returns the fixed failure reply for lang, falling back to English.
func Apology(lang string) string {
	if a, ok := apologies[lang]; ok {
		return a
	}
	return apologies["en"]
}

func languageDirective(lang string) string {
	if lang == "ar" {
		return arabicDirective
	}
	return ""
}

// ProfileContext renders the "who is asking" block injected into the
// system instruction. A nil user yields no context.
func ProfileContext(u *model.User) string {
	if u == nil {
		return ""
	}

	parts := []string{"Name: " + u.Name}
	if u.Age > 0 {
		parts = append(parts, "Age: "+strconv.Itoa(u.Age))
	}
	if u.MaritalStatus != "" {
		parts = append(parts, "Marital Status: "+u.MaritalStatus)
	}
	if u.LifeStage != "" {
		parts = append(parts, "Life Stage: "+string(u.LifeStage))
	}
	if u.ChildrenCount != nil {
		parts = append(parts, "Children: "+strconv.Itoa(*u.ChildrenCount))
	}
	if u.IsTryingToConceive {
		parts = append(parts, "Goal: Trying to Conceive")
	}
	if u.ActivityLevel != "" {
		parts = append(parts, "Activity Level: "+u.ActivityLevel)
	}

	return fmt.Sprintf("\n[User Profile Context: %s]", strings.Join(parts, ", "))
}

func systemInstruction(lang, roster string, profile *model.User) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString(languageDirective(lang))
	if roster != "" {
		b.WriteString("\n[Context: Available Experts: ")
		b.WriteString(roster)
		b.WriteString("]")
	}
	b.WriteString(ProfileContext(profile))
	return b.String()
}
