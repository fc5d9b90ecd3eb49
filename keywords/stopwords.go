package keywords

import "strings"

// English and Spanish stopwords; the service analyzes both languages.
const stopwordList = `
the and to of in is it you that he was for on are with as they be at one have
this from they will been were what when your said there each which their time
would about them then some into more other could these than first water like
long made thing over such even most after also
de la que el en se no es por un con una los las del al como más pero sus le
ha o lo esta entre cuando muy sin sobre también hasta hay donde quien desde
todo nos durante todos uno les contra otros ese eso ante ellos esto antes
algunos unos otro otras otra tanto esa estos mucho quienes nada muchos cual
poco ella estar estas algunas algo nosotros
`

var stopwords = func() map[string]bool {
	words := strings.Fields(stopwordList)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}()
