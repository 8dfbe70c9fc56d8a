package gemini

import "fmt"

func predictPrompt(crop string, daysPlanted int) string {
	return fmt.Sprintf(`You are an expert agricultural pathologist. A farmer planted %s about %d days ago.
Based on the crop and its approximate growth stage, predict 2 to 4 of the most common potential diseases it might face.
For each disease, provide a short, one-sentence description of its key visual symptom.`, crop, daysPlanted)
}

func editPrompt(diseaseName string) string {
	return fmt.Sprintf(`This is a photo of a farmer's plant. Edit this image to show clear, distinct, and realistic visual symptoms of a plant disease called "%s". The edit should be seamless and focus on the parts of the plant typically affected (leaves, stem, etc.). Make the symptoms obvious and easy for a farmer to identify on their own plant. Keep the original composition. Do not add any text or labels to the image.`, diseaseName)
}

func generatePrompt(crop, diseaseName string) string {
	return fmt.Sprintf(`A photorealistic, high-resolution, close-up image of a %s plant clearly showing the symptoms of %s. The image must focus on the affected parts of the plant (e.g., leaves, stem, fruit) with an accurate and detailed visual representation of the disease. The background should be a natural, slightly blurred farm or garden environment. The image should look like a real photograph. Do not add any text or labels.`, crop, diseaseName)
}

func solutionPrompt(crop, diseaseName string) string {
	return fmt.Sprintf(`You are an expert agricultural advisor. A farmer needs a simple, clear, and actionable treatment plan for their %s plants, which are showing symptoms of %s.
Provide a step-by-step guide with practical advice.`, crop, diseaseName)
}
