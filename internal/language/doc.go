// Package language normalizes the ISO 639-2 language codes carried by
// Blu-ray clip metadata and the PMT, and turns them into display names.
//
// Discs mix bibliographic ("fre", "ger") and terminology ("fra", "deu")
// codes. Bibliographic codes are folded to terminology form before lookup
// in the x/text CLDR tables.
package language
